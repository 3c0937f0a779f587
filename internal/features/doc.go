// Package features models the source polygon set that gets tiled: the
// polygons themselves, their attribute maps and the coordinate reference
// system they are expressed in.
//
// A Collection is never mutated once built. Reproject returns a new
// Collection and leaves the receiver untouched, so one Collection can be
// shared read-only across concurrently running trials.
package features
