// Package ota implements the OTA software update requestor: the image
// file format, an image processor that stores a download in a partition,
// a directory based provider and the query/download/apply state machine
// that backs the OTA Software Update Requestor cluster.
package ota
