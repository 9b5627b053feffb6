// Package data contains general-purpose data structures used by the caching layer.
package data
