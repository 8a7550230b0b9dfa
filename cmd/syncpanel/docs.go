package main

//go:generate swag init -g cmd/syncpanel/main.go -o docs

// @title           Sync Panel API
// @version         0.1.0
// @description     Launch analytics sync jobs, track them per panel, and browse sync history.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
