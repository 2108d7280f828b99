package config

import "github.com/joho/godotenv"

// LoadEnv loads variables from a .env file in the working directory. Variables
// that are already set win. A missing file is reported as an error that
// satisfies os.IsNotExist.
func LoadEnv() error {
	return godotenv.Load()
}
