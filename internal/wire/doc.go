// Package wire implements the contact-wire measurement pipeline: frame
// preprocessing, wire edge detection with sub-pixel refinement,
// pixel-to-millimetre calibration, stagger/diameter measurement, a
// threshold rules engine with hysteresis, and the data bus that fans
// results out to subscribers.
package wire
