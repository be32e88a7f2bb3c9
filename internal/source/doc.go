// Package source turns a path or device identifier into an ordered sequence
// of frames.
//
// Still images and image directories are decoded in-process. Video files and
// cameras are decoded by an ffmpeg child process that writes raw RGBA frames
// to a pipe. Every Source holds its media handle until Close.
package source
