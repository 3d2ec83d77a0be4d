// Package crcutil provides utility functions for cyclic redundancy check algorithms.
// CRCs are designed to protect against common types of errors between communications,
// where they can provide assurance of data integrity.
package crcutil
