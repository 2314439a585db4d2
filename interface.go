package isp

import "context"

// Interface is the vocabulary of one programming session.
type Interface interface {
	// Read the device signature at low speed and compare it with the chip type
	VerifySignature(ctx context.Context) (signature string, err error)

	// Read efuse, hfuse and lfuse
	ReadFuses(ctx context.Context) (FuseValues, error)

	// Write exactly the given fuse bytes
	WriteFuses(ctx context.Context, fuses FuseValues) error

	// Erase the chip and write the image at high speed
	WriteFlash(ctx context.Context, image FirmwareImage) (bytesWritten int, err error)
}

var _ Interface = (*ISP)(nil)
