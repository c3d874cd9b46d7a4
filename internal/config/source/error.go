package source

import "errors"

// Error definitions for the source package.
var (
	// ErrDownload wraps every provisioning transfer failure.
	ErrDownload = errors.New("model download failed")

	ErrUnsupportedSource = errors.New("unsupported model source")
	ErrStatus            = errors.New("remote returned an error status")
	ErrIncomplete        = errors.New("incomplete transfer")
	ErrTooLarge          = errors.New("artifact exceeds size limit")
	ErrChecksum          = errors.New("checksum mismatch")
	ErrDriveConfirm      = errors.New("google drive did not serve the file")
)
