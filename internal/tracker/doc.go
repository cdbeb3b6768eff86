// Package tracker is the frame-analysis process.
//
// Two tasks share a framecache.Cache. The copier blocks on the bus frame
// channel and stores each new frame in the cache; the processor analyzes the
// cached frame while holding the cache, converts the target's bounding box
// into a normalized error vector and writes it to the bus error channel.
// The tracking algorithm itself sits behind the Analyzer interface; a color
// threshold analyzer ships so the pipeline runs end to end.
package tracker
