package models

import "time"

// Document is a file as listed by the document store.
type Document struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	ModifiedTime time.Time `json:"modified_time"`
	WebViewLink  string    `json:"web_view_link,omitempty"`
	Size         int64     `json:"size,omitempty"`
	Parents      []string  `json:"parents,omitempty"`
	Trashed      bool      `json:"trashed,omitempty"`
}

const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeGoogleSlides = "application/vnd.google-apps.presentation"
	MimePDF          = "application/pdf"
	MimeDOCX         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX         = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeText         = "text/plain"
	MimeOctetStream  = "application/octet-stream"
)

func (d Document) IsFolder() bool { return d.MimeType == MimeFolder }

// Paginated reports whether page numbers in this document are meaningful
// for page previews.
func (d Document) Paginated() bool {
	return d.MimeType == MimePDF || d.MimeType == MimeGoogleSlides
}
