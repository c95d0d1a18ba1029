// Package pipeline runs one generate, persist and publish pass per tick and
// the retention sweep that bounds stored history.
package pipeline
