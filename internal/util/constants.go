package util

const (
	DateFormat        = "2006-01-02"
	TimeFormat        = "2006-01-02 15:04:05"
	CertificateFormat = "January 2, 2006"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)
