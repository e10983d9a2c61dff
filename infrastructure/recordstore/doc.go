// Package recordstore persists OutputRecords as JSON Lines.
//
// Each record is one line of the form
//
//	{"id":"0","image_vector":[0.1,0.2],"description":"cat"}
//
// and is flushed and fsynced before Append returns, so a crash loses at most
// the record being written. Writers hold an advisory lock on <path>.lock for
// their whole lifetime.
package recordstore
