package models

import "time"

// Tenant is an isolated client corpus rooted at one document-store folder.
type Tenant struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	RootFolderID string    `json:"root_folder_id" db:"root_folder_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
