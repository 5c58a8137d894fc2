package domain

import "time"

type Dataset struct {
	ID          string    `json:"dataset_id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"-"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}
