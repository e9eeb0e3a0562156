// Package metadata builds waveform catalog and Dublin Core documents for
// archive files.
package metadata
