package main

import (
	"imgshelf/internal/api"
	"imgshelf/internal/config"
)

func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	baseURL, err := api.ParseBaseURL(cfg.APIURL)
	if err != nil {
		return err
	}
	return fn(api.NewClient(baseURL))
}
