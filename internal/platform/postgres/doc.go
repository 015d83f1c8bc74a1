// Package postgres provides PostgreSQL implementations of the
// application's store interfaces. SQL lives here and nowhere else;
// database errors are mapped to the domain-level sentinels in the
// store package before they leave this boundary.
package postgres
