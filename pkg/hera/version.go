package hera

// Version is the release of the hera module.
const Version = "0.1.0"
