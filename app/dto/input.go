package dto

import "io"

type RegisterInput struct {
	FullName string
	Email    string
	Username string
	Password string
}

type LoginInput struct {
	Email    string
	Username string
	Password string
}

// FileUpload carries one multipart file part through to the media store
// without spooling it to disk first.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}
