package sftp

import "io"

// TransferStage wraps the data stream of a transfer. Uploads pass the source
// through StartReader, downloads pass the destination through StartWriter.
// Stages are applied in the order they were set.
type TransferStage interface {
	StartReader(reader io.Reader) io.Reader
	StartWriter(writer io.Writer) io.Writer
}

// Finisher is implemented by stages that hold per transfer state. Finish is
// called when the transfer ends, successful or not.
type Finisher interface {
	Finish()
}
