// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2020 Cory Slep
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

// Package apcore wires the framework, models, services, and outbox
// pipeline packages into a runnable server: load or bootstrap a config
// file, prepare the Postgres schema, and serve the outbox HTTP surface.
package apcore

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/outpostfed/apcore/ap"
	"github.com/outpostfed/apcore/framework"
	"github.com/outpostfed/apcore/framework/config"
	"github.com/outpostfed/apcore/framework/conn"
	"github.com/outpostfed/apcore/framework/db"
	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

var (
	configFlag = flag.String("config", "config.ini", "Path to the configuration file")
	debugFlag  = flag.Bool("debug", false, "Skip config verification and TLS enforcement for local development")
)

// Run loads or bootstraps the configuration file, prepares the database,
// wires the outbox pipeline, and serves until interrupted.
func Run() error {
	if !flag.Parsed() {
		flag.Parse()
	}

	var c *config.Config
	var err error
	if _, statErr := os.Stat(*configFlag); os.IsNotExist(statErr) {
		util.InfoLogger.Infof("%s", framework.ClarkeSays(
			"I don't see a config file yet. Let's make one together!"))
		c, err = framework.PromptNewConfig(*configFlag)
	} else {
		c, err = framework.LoadConfigFile(*configFlag, *debugFlag)
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	sqlDB, err := db.NewDB(c)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer sqlDB.Close()
	if err := db.MustPing(sqlDB); err != nil {
		return err
	}

	actorsModel := &models.Actors{}
	activitiesModel := &models.Activities{}
	objectsModel := &models.Objects{}
	collectionsModel := &models.Collections{}
	policiesModel := &models.Policies{}
	resolutionsModel := &models.Resolutions{}
	privateKeysModel := &models.PrivateKeys{}
	deliveryAttemptsModel := &models.DeliveryAttempts{}

	all := []models.Model{
		actorsModel,
		activitiesModel,
		objectsModel,
		collectionsModel,
		policiesModel,
		resolutionsModel,
		privateKeysModel,
		deliveryAttemptsModel,
	}
	for _, m := range all {
		if err := m.Prepare(sqlDB); err != nil {
			return fmt.Errorf("preparing statements: %w", err)
		}
	}
	defer func() {
		for _, m := range all {
			m.Close()
		}
	}()
	if err := createTables(sqlDB, all); err != nil {
		return err
	}

	privateKeysSvc := &services.PrivateKeys{DB: sqlDB, PrivateKeys: privateKeysModel}
	actorsSvc := &services.Actors{DB: sqlDB, Actors: actorsModel, PrivateKeys: privateKeysSvc}
	activitiesSvc := &services.Activities{DB: sqlDB, Activities: activitiesModel}
	objectsSvc := &services.Objects{DB: sqlDB, Objects: objectsModel}
	collectionsSvc := &services.Collections{DB: sqlDB, Collections: collectionsModel}
	policiesSvc := &services.Policies{DB: sqlDB, Policies: policiesModel, Resolutions: resolutionsModel}
	deliveryAttemptsSvc := &services.DeliveryAttempts{DB: sqlDB, DeliveryAttempts: deliveryAttemptsModel}

	httpClient := &http.Client{
		Timeout: time.Duration(c.ServerConfig.HttpClientTimeoutSeconds) * time.Second,
	}
	controller, err := conn.NewController(c, httpClient, deliveryAttemptsSvc)
	if err != nil {
		return fmt.Errorf("building transport controller: %w", err)
	}
	defer controller.Stop()

	collections := ap.NewCollections(collectionsSvc)
	actorResolver := ap.NewActorResolver(actorsSvc, time.Hour)
	actorResolver.Start()
	defer actorResolver.Stop()

	audienceResolver := ap.NewAudienceResolver(
		collections,
		actorResolver,
		policiesSvc,
		c.DatabaseConfig.DefaultCollectionPageSize)

	handlers := &ap.Handlers{
		Activities:  activitiesSvc,
		Objects:     objectsSvc,
		Collections: collections,
		Policies:    policiesSvc,
		Scheme:      scheme(),
		Host:        c.ServerConfig.Host,
	}

	delivery := ap.NewDeliveryEngine(controller, privateKeysSvc, c.ActivityPubConfig.DeliveryWorkerCount, 1024)
	delivery.Start(c.ActivityPubConfig.DeliveryWorkerCount)
	defer delivery.Stop()

	events := ap.NewEventBus()

	pipeline := &ap.Pipeline{
		Actors:          actorsSvc,
		Activities:      activitiesSvc,
		Objects:         objectsSvc,
		Collections:     collections,
		ActorRes:        actorResolver,
		AudienceRes:     audienceResolver,
		Handlers:        handlers,
		Delivery:        delivery,
		Events:          events,
		Controller:      controller,
		PrivateKeys:     privateKeysSvc,
		Scheme:          scheme(),
		Host:            c.ServerConfig.Host,
		DefaultPageSize: c.DatabaseConfig.DefaultCollectionPageSize,
		MaxPageSize:     c.DatabaseConfig.MaxCollectionPageSize,
	}

	router := mux.NewRouter()
	pipeline.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         c.ServerConfig.BindAddress,
		Handler:      router,
		ReadTimeout:  time.Duration(c.ServerConfig.HttpsReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(c.ServerConfig.HttpsWriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.InfoLogger.Infof("Listening on %s", srv.Addr)
		if c.ServerConfig.Proxy || *debugFlag {
			errCh <- srv.ListenAndServe()
		} else {
			errCh <- srv.ListenAndServeTLS(c.ServerConfig.CertFile, c.ServerConfig.KeyFile)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sig:
		util.InfoLogger.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}

// scheme reports the URI scheme this instance's own IRIs are addressed
// with. Debug mode runs over plain HTTP for local development; everything
// else federates over HTTPS, whether or not TLS is terminated locally.
func scheme() string {
	if *debugFlag {
		return "http"
	}
	return "https"
}

func createTables(sqlDB *sql.DB, all []models.Model) error {
	tx, err := sqlDB.Begin()
	if err != nil {
		return err
	}
	for _, m := range all {
		if err := m.CreateTable(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("creating table: %w", err)
		}
	}
	return tx.Commit()
}
