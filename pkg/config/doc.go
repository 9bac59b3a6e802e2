// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each config struct declares its variables through `env` tags parsed by
// github.com/caarlos0/env; .env files are loaded once per process through
// github.com/joho/godotenv and never override variables already present in
// the environment.
package config
