// Package atsame5x implements the flash and fuse sequencers for the
// Microchip SAM D5x/E5x family, driven over a debug access port.
package atsame5x
