package bitbucketapi

import (
	"bytes"
	"io"
	"mime/multipart"

	"github.com/minios-linux/i18ncms/gitprovider"
)

// commitForm encodes a commit for POST /src: each written file is a form
// file named by its path, deletions are repeated "files" fields.
func commitForm(in gitprovider.CommitInput, deletes []string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"message", in.Message}, {"branch", in.Branch}}
	for _, p := range deletes {
		fields = append(fields, [2]string{"files", p})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	for _, p := range gitprovider.SortedPaths(in.FilesToWrite) {
		part, err := w.CreateFormFile(p, p)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(in.FilesToWrite[p]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
