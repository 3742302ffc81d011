// Package extract unpacks verified release archives into the installation
// store.
//
// The archive format comes from catalog metadata, never from content
// sniffing. Extraction lands in a staging directory next to the final
// location and is renamed in atomically once the expected server binaries
// have been found, so a crashed or cancelled extraction never leaves a
// half-populated installation behind.
package extract
