package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Repair Desk",
    "description": "Local API over the offline request cache and sync engine for equipment-repair requests",
    "version": "1.0"
  },
  "basePath": "/",
  "tags": [
    {"name": "session"},
    {"name": "sync"},
    {"name": "requests"},
    {"name": "comments"},
    {"name": "statistics"}
  ],
  "paths": {}
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
