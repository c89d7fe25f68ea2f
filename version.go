package bandsaw

// Version of the module, overridden at build time with
// -ldflags "-X github.com/kant-ai/bandsaw.Version=...".
var Version = "0.1.0-dev"
