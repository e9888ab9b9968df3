package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

const uploadAction = "Admin"

type UploadFile struct {
	Name    string
	Content []byte
}

// Upload attaches files to record id of tableName.
func (c *Client) Upload(ctx context.Context, id, tableName string, files []UploadFile) (*Payload, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}

	form := NewFormData().
		Add("id", id).
		Add("tableName", tableName).
		Add("Action", uploadAction)
	for _, file := range files {
		form.AddFile("files", file.Name, file.Content)
	}

	return c.Request(ctx, &Request{
		Method: http.MethodPost,
		Path:   UploadPath,
		Body:   form,
	})
}

// ListUploads lists the files attached to record id on form formName.
func (c *Client) ListUploads(ctx context.Context, id, formName string) (*Payload, error) {
	return c.Request(ctx, &Request{
		Method: http.MethodGet,
		Path:   UploadPath,
		Query:  url.Values{"id": {id}, "formName": {formName}},
	})
}

func (c *Client) DeleteUpload(ctx context.Context, fileID string) (*Payload, error) {
	return c.Request(ctx, &Request{
		Method: http.MethodDelete,
		Path:   UploadPath + "/" + url.PathEscape(fileID),
	})
}
