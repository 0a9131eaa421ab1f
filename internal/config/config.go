// Package config loads the engine's process-wide configuration document:
// the set of servers, clients and controller plug-ins to start, read from
// a file (or the environment) via viper and unmarshalled into the typed
// config structs each component package exposes.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mmstreamer/engine/internal/client"
	"github.com/mmstreamer/engine/internal/controller"
	enginerrors "github.com/mmstreamer/engine/internal/errors"
	"github.com/mmstreamer/engine/internal/link"
	"github.com/mmstreamer/engine/internal/server"
)

// RecipientSpec is the file representation of a link.Recipient.
type RecipientSpec struct {
	Host       string `mapstructure:"host"`
	Service    string `mapstructure:"service"`
	SocketPath string `mapstructure:"socket_path"`
}

func (r RecipientSpec) toRecipient() link.Recipient {
	return link.Recipient{Host: r.Host, Service: r.Service, SocketPath: r.SocketPath}
}

// ServerSpec is the file representation of one server.Config, minus the
// callback fields a document cannot carry.
type ServerSpec struct {
	Name          string        `mapstructure:"name"`
	Kind          string        `mapstructure:"kind"`
	Mode          string        `mapstructure:"mode"`
	Accept        string        `mapstructure:"accept"`
	Recipient     RecipientSpec `mapstructure:"recipient"`
	SocketName    string        `mapstructure:"socket_name"`
	Path          string        `mapstructure:"path"`
	Mime          string        `mapstructure:"mime"`
	MaxBufferSize uint32        `mapstructure:"max_buffer_size"`
	AppName       string        `mapstructure:"app_name"`
	AppVersion    string        `mapstructure:"app_version"`
	MaxClients    int           `mapstructure:"max_clients"`
}

// ToServerConfig converts the file spec into a server.Config. Callback
// fields are left nil; callers of the returned config wire them in code.
func (s ServerSpec) ToServerConfig() (server.Config, error) {
	kind, err := parseKind(s.Kind)
	if err != nil {
		return server.Config{}, err
	}
	mode, err := parseMode(s.Mode)
	if err != nil {
		return server.Config{}, err
	}
	accept, err := parseAcceptMode(s.Accept)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Name:          s.Name,
		Kind:          kind,
		Mode:          mode,
		Accept:        accept,
		Recipient:     s.Recipient.toRecipient(),
		SocketName:    s.SocketName,
		Path:          s.Path,
		Mime:          s.Mime,
		MaxBufferSize: s.MaxBufferSize,
		AppName:       s.AppName,
		AppVersion:    s.AppVersion,
		MaxClients:    s.MaxClients,
	}, nil
}

// ClientSpec is the file representation of one client.Config.
type ClientSpec struct {
	Name          string        `mapstructure:"name"`
	Kind          string        `mapstructure:"kind"`
	Mode          string        `mapstructure:"mode"`
	Recipient     RecipientSpec `mapstructure:"recipient"`
	SocketName    string        `mapstructure:"socket_name"`
	Path          string        `mapstructure:"path"`
	AppName       string        `mapstructure:"app_name"`
	AppVersion    string        `mapstructure:"app_version"`
	MaxBufferSize uint32        `mapstructure:"max_buffer_size"`
}

func (c ClientSpec) ToClientConfig() (client.Config, error) {
	kind, err := parseKind(c.Kind)
	if err != nil {
		return client.Config{}, err
	}
	mode, err := parseMode(c.Mode)
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{
		Name:          c.Name,
		Kind:          kind,
		Mode:          mode,
		Recipient:     c.Recipient.toRecipient(),
		SocketName:    c.SocketName,
		Path:          c.Path,
		AppName:       c.AppName,
		AppVersion:    c.AppVersion,
		MaxBufferSize: c.MaxBufferSize,
	}, nil
}

// LibrarySpec is the file representation of one controller.LibraryConfig.
type LibrarySpec struct {
	Path           string `mapstructure:"path"`
	InitSymbol    string `mapstructure:"init_symbol"`
	UninitSymbol  string `mapstructure:"uninit_symbol"`
	OnCommandSym  string `mapstructure:"on_command_symbol"`
	OnEventSymbol string `mapstructure:"on_event_symbol"`
}

func (l LibrarySpec) ToLibraryConfig() controller.LibraryConfig {
	return controller.LibraryConfig{
		Path:                l.Path,
		InitSymbolName:      l.InitSymbol,
		UninitSymbolName:    l.UninitSymbol,
		OnCommandSymbolName: l.OnCommandSym,
		OnEventSymbolName:   l.OnEventSymbol,
	}
}

// Document is the top-level shape of the engine's configuration file.
type Document struct {
	Servers   []ServerSpec  `mapstructure:"servers"`
	Clients   []ClientSpec  `mapstructure:"clients"`
	Libraries []LibrarySpec `mapstructure:"libraries"`
}

// Load reads the engine configuration from path (if non-empty) and from
// MMSTREAMER_-prefixed environment variables, returning the unmarshalled
// document. With an empty path no file is read and only the environment
// is consulted.
func Load(path string) (*Document, error) {
	v := viper.New()
	v.SetEnvPrefix("MMSTREAMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, enginerrors.NewParamsError("config.Load: read "+path, err)
		}
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, enginerrors.NewParamsError("config.Load: unmarshal", err)
	}
	return &doc, nil
}

func parseKind(s string) (link.Kind, error) {
	switch strings.ToLower(s) {
	case "inetstream", "inet_stream", "tcp":
		return link.InetStream, nil
	case "inetdgram", "inet_dgram", "udp":
		return link.InetDgram, nil
	case "unixstream", "unix_stream":
		return link.UnixStream, nil
	case "unixdgram", "unix_dgram":
		return link.UnixDgram, nil
	default:
		return 0, enginerrors.NewParamsError(fmt.Sprintf("config.parseKind: unknown kind %q", s), nil)
	}
}

func parseMode(s string) (link.Mode, error) {
	switch strings.ToLower(s) {
	case "standard":
		return link.Standard, nil
	case "http":
		return link.Http, nil
	case "custom":
		return link.Custom, nil
	default:
		return 0, enginerrors.NewParamsError(fmt.Sprintf("config.parseMode: unknown mode %q", s), nil)
	}
}

func parseAcceptMode(s string) (link.AcceptMode, error) {
	switch strings.ToLower(s) {
	case "", "automatic":
		return link.Automatic, nil
	case "manual":
		return link.Manual, nil
	default:
		return 0, enginerrors.NewParamsError(fmt.Sprintf("config.parseAcceptMode: unknown accept mode %q", s), nil)
	}
}
