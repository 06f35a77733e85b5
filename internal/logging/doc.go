// Package logging provides the leveled, printf-style logging used throughout
// the gallery index service.
//
// Messages are written through a zerolog logger. By default output goes to
// stderr through zerolog's console writer; set LOG_FORMAT=json for one JSON
// object per line.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true.
package logging
