// Package watch provides the debounced filesystem event source shared by
// on-file-change and wait-for-file. It wraps fsnotify, coalesces rapid
// notifications per path within a debounce window, and delivers the
// resulting change events in order through a blocking iterator.
package watch
