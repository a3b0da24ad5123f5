package config

import "errors"

var (
	// ErrNoTarget is returned when no target URL is provided
	ErrNoTarget = errors.New("no target URL provided")
	// ErrEmptyOutputDir is returned when the output directory is empty
	ErrEmptyOutputDir = errors.New("output_dir cannot be empty")
	// ErrNegativeDepth is returned when depth is below zero
	ErrNegativeDepth = errors.New("depth must be 0 or greater")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidNavigationTimeout is returned when navigation timeout is not greater than 0
	ErrInvalidNavigationTimeout = errors.New("navigation_timeout must be greater than 0")
	// ErrInvalidResourceRule is returned when a resource rule is not in 'tag/attr' form
	ErrInvalidResourceRule = errors.New("resource rule must be in 'tag/attr' format")
	// ErrInvalidHeader is returned when a custom header is not in 'Name: Value' form
	ErrInvalidHeader = errors.New("header must be in 'Name: Value' format")
)
