/*
The sync package implements foldersync's one-way sync algorithm. It makes a
replica directory tree mirror a source directory tree.

A pass has three phases that always run in order.

The scan walks the source tree. Directories missing from the replica are
created before the walk descends into them. Files are compared against their
replica counterparts (size, then modification time, then contents) and the
ones that differ are queued for copying. Excluded files are skipped.

The queued files are then copied on a bounded pool of workers. The queued
paths never overlap, so the copies don't need to coordinate.

Finally, the replica tree is pruned: everything whose path no longer exists
in the source is removed.

The Syncer doesn't keep any state between passes. A file that fails to sync
is simply detected again by the next pass's scan.

In dry-run mode, every phase makes the same decisions and logs them, but
nothing on the filesystem is modified.
*/
package sync
