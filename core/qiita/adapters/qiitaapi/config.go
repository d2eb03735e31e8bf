package qiitaapi

import "time"

type Config struct {
	// BaseURL of the content service, scheme and host only.
	BaseURL string `env:"BASE_URL" envDefault:"https://qiita.com"`

	// AccessToken is attached as a bearer credential when non-empty.
	AccessToken string `env:"ACCESS_TOKEN"`

	// PerPage is the page size requested from the list endpoints.
	PerPage int `env:"PER_PAGE" envDefault:"20"`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// RPS/Burst bound this process's request rate against the service.
	RPS   float64 `env:"RPS" envDefault:"10"`
	Burst int     `env:"BURST" envDefault:"10"`
}
