package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/adnexal/bidserver/config"
	"github.com/adnexal/bidserver/router"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

const configFileName = "bidserver"

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(cfg); err != nil {
		glog.Exitf("bidserver failed: %v", err)
	}
}

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(cfg *config.Configuration) error {
	handler, err := router.New(cfg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	glog.Infof("Main server starting on: %s", addr)
	return http.ListenAndServe(addr, handler)
}
