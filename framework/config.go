// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package framework

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"

	"github.com/outpostfed/apcore/framework/config"
)

const (
	postgresDB = "postgres"
)

// defaultConfig builds a Config prefilled with sane defaults for the given
// database kind, ready to be customized by the guided prompt flow.
func defaultConfig(dbKind string) (c *config.Config, err error) {
	switch dbKind {
	case postgresDB:
	default:
		err = fmt.Errorf("unknown database kind: %s", dbKind)
		return
	}
	c = &config.Config{
		ServerConfig:      defaultServerConfig(),
		DatabaseConfig:    defaultDatabaseConfig(dbKind),
		ActivityPubConfig: defaultActivityPubConfig(),
	}
	return
}

func defaultServerConfig() config.ServerConfig {
	return config.ServerConfig{
		BindAddress:                 ":443",
		HttpsReadTimeoutSeconds:     60,
		HttpsWriteTimeoutSeconds:    60,
		HttpClientTimeoutSeconds:    60,
		RedirectReadTimeoutSeconds:  60,
		RedirectWriteTimeoutSeconds: 60,
	}
}

func defaultDatabaseConfig(dbKind string) config.DatabaseConfig {
	return config.DatabaseConfig{
		DatabaseKind:              dbKind,
		MaxIdleConns:              2,
		DefaultCollectionPageSize: 10,
		MaxCollectionPageSize:     200,
		PostgresConfig:            defaultPostgresConfig(),
	}
}

func defaultActivityPubConfig() config.ActivityPubConfig {
	return config.ActivityPubConfig{
		ClockTimezone:                       "",
		OutboundRateLimitQPS:                2,
		OutboundRateLimitBurst:              5,
		OutboundRateLimitPrunePeriodSeconds: 60,
		OutboundRateLimitPruneAgeSeconds:    30,
		HttpSignaturesConfig:                defaultHttpSignaturesConfig(),
		MaxInboxForwardingRecursionDepth:    50,
		MaxDeliveryRecursionDepth:           50,
		RetryPageSize:                       25,
		RetryAbandonLimit:                   10,
		RetrySleepPeriod:                    300,
		DeliveryWorkerCount:                 4,
	}
}

func defaultHttpSignaturesConfig() config.HttpSignaturesConfig {
	return config.HttpSignaturesConfig{
		Algorithms:      []string{"rsa-sha256"},
		DigestAlgorithm: "SHA-256",
		GetHeaders:      []string{"(request-target)", "Date"},
		PostHeaders:     []string{"(request-target)", "Date", "Digest"},
	}
}

func defaultPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host: "localhost",
		Port: 5432,
	}
}

// LoadConfigFile reads and parses an ini-formatted configuration file.
func LoadConfigFile(filename string, debug bool) (c *config.Config, err error) {
	var i *ini.File
	i, err = ini.Load(filename)
	if err != nil {
		return
	}
	c = &config.Config{}
	if err = i.MapTo(c); err != nil {
		return
	}
	if !debug {
		err = c.Verify()
	}
	return
}

// SaveConfigFile writes a Config out to an ini-formatted configuration file.
func SaveConfigFile(filename string, c *config.Config) error {
	i := ini.Empty()
	if err := ini.ReflectFrom(i, c); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = i.WriteTo(f)
	return err
}
