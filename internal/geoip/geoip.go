// Package geoip resolves endpoint server addresses to country and network
// operator tags using local MMDB databases. Missing databases degrade to a
// logged warning; tagging is strictly best-effort.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"subrank/internal/logger"
)

type Resolver struct {
	asn     *geoip2.Reader
	country *geoip2.Reader
}

// Open loads the MMDB files. Either path may be empty; a resolver with no
// databases returns lookup errors but is safe to use.
func Open(asnPath, countryPath string) (*Resolver, error) {
	r := &Resolver{}

	if countryPath != "" {
		reader, err := geoip2.Open(countryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open country DB at %s: %w", countryPath, err)
		}
		r.country = reader
	}
	if asnPath != "" {
		reader, err := geoip2.Open(asnPath)
		if err != nil {
			logger.Log.Warnf("Failed to open ASN DB at %s: %v. Operator tags will be missing.", asnPath, err)
		} else {
			r.asn = reader
		}
	}
	return r, nil
}

type Result struct {
	Country string
	ISP     string
}

// Lookup resolves a hostname or IP to geo metadata. Hostnames are resolved
// through the system resolver first.
func (r *Resolver) Lookup(host string) (*Result, error) {
	if r == nil || (r.country == nil && r.asn == nil) {
		return nil, fmt.Errorf("geoip databases not loaded")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("cannot resolve %s", host)
		}
		ip = ips[0]
	}

	res := &Result{}
	if r.country != nil {
		if c, err := r.country.Country(ip); err == nil {
			res.Country = c.Country.IsoCode
		}
	}
	if r.asn != nil {
		if a, err := r.asn.ASN(ip); err == nil {
			res.ISP = a.AutonomousSystemOrganization
		}
	}
	if res.Country == "" && res.ISP == "" {
		return nil, fmt.Errorf("no geo data for %s", host)
	}
	return res, nil
}

func (r *Resolver) Close() {
	if r == nil {
		return
	}
	if r.asn != nil {
		r.asn.Close()
	}
	if r.country != nil {
		r.country.Close()
	}
}
