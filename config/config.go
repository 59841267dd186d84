package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MongoUrl    string `envconfig:"PORTAL_MONGO_URL"`
	DbName      string `envconfig:"PORTAL_DBNAME"`
	Port        string `envconfig:"PORTAL_PORT" default:"8920"`
	BaseUrl     string `envconfig:"PORTAL_BASE_URL"`
	CatalogFile string `envconfig:"PORTAL_CATALOG_FILE"`
	TokenIssuer string `envconfig:"PORTAL_TOKEN_ISSUER"`
}

func GetEnvConfig() Config {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		log.Println("Error occurred reading configuration: " + err.Error())
		return Config{}
	}
	return cfg
}
