/*
Package log provides the global zerolog logger and component child loggers.

Init configures level and output format once at startup; packages derive
scoped loggers via WithComponent or WithCrate.
*/
package log
