package tlsutil

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rewatchDelay gives a rotated file time to reappear before it is watched again.
const rewatchDelay = 100 * time.Millisecond

// CertificateLoader serves a key pair and reloads it whenever either file
// changes on disk.
type CertificateLoader struct {
	certPath string
	keyPath  string

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCertificateLoader loads the key pair and starts watching both files.
func NewCertificateLoader(certPath, keyPath string) (*CertificateLoader, error) {
	cl := &CertificateLoader{
		certPath: certPath,
		keyPath:  keyPath,
		done:     make(chan struct{}),
	}
	if err := cl.reload(); err != nil {
		return nil, fmt.Errorf("initial certificate load: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	for _, path := range []string{certPath, keyPath} {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
	}
	cl.watcher = watcher

	go cl.watch()
	return cl, nil
}

func (cl *CertificateLoader) reload() error {
	cert, err := tls.LoadX509KeyPair(cl.certPath, cl.keyPath)
	if err != nil {
		return err
	}
	cl.mu.Lock()
	cl.cert = &cert
	cl.mu.Unlock()
	return nil
}

func (cl *CertificateLoader) watch() {
	for {
		select {
		case event, ok := <-cl.watcher.Events:
			if !ok {
				return
			}
			cl.handleEvent(event)
		case err, ok := <-cl.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("certificate watcher error", "error", err)
		case <-cl.done:
			return
		}
	}
}

func (cl *CertificateLoader) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		slog.Info("certificate file changed, reloading", "file", event.Name)
	case event.Has(fsnotify.Rename), event.Has(fsnotify.Remove):
		// Atomic rotation replaces the file; the old watch is gone with it.
		slog.Info("certificate file rotated, re-watching", "file", event.Name)
		cl.watcher.Remove(event.Name)
		time.Sleep(rewatchDelay)
		if err := cl.watcher.Add(event.Name); err != nil {
			slog.Warn("failed to re-watch certificate file", "file", event.Name, "error", err)
		}
	default:
		return
	}

	if err := cl.reload(); err != nil {
		slog.Error("failed to reload certificate, keeping previous", "error", err)
		return
	}
	slog.Info("certificate reloaded")
}

// GetCertificate returns the current certificate. It is meant for
// tls.Config.GetCertificate.
func (cl *CertificateLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.cert, nil
}

// Close stops watching the certificate files.
func (cl *CertificateLoader) Close() error {
	close(cl.done)
	return cl.watcher.Close()
}

// NewServerTLSConfig returns a server TLS configuration backed by certLoader.
func NewServerTLSConfig(certLoader *CertificateLoader) *tls.Config {
	return &tls.Config{
		GetCertificate: certLoader.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
