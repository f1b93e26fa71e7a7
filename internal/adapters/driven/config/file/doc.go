// Package file persists layerforge settings as config.toml.
//
// Keys are flat dot paths in memory (csv.delimiter, relay.s3.bucket) and
// nested TOML tables on disk.
package file
