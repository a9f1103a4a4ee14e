package filesystem

type (
	Reader interface {
		// ReadJSON decodes the file at path into target. A missing file is
		// reported with an error wrapping fs.ErrNotExist.
		ReadJSON(path string, target any) error
	}
	Writer interface {
		WriteJSON(path string, data any) error
		WriteBytes(path string, data []byte) error
	}
)
