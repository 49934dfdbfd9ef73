package server

// Client-facing error messages.
const (
	MsgNoImage       = "No image provided"
	MsgEmptyImage    = "Empty image file"
	MsgTooLarge      = "Image exceeds upload limit"
	MsgBadBase64     = "Invalid base64 image payload"
	MsgUndecodable   = "Unrecognized or corrupt image"
	MsgTooManyPixels = "Image dimensions exceed limit"
	MsgModelNotReady = "Model not loaded"
)
