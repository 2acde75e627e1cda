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

package conn

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-fed/httpsig"
	"golang.org/x/time/rate"

	"github.com/outpostfed/apcore/framework/config"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

const (
	activityStreamsContentType = "application/ld+json; profile=\"https://www.w3.org/ns/activitystreams\""
	userAgent                  = "outpostfed-apcore"
)

func containsRequiredHttpHeaders(method string, headers []string) error {
	var hasRequestTarget, hasDate, hasDigest bool
	for _, header := range headers {
		hasRequestTarget = hasRequestTarget || header == httpsig.RequestTarget
		hasDate = hasDate || header == "Date"
		hasDigest = hasDigest || header == "Digest"
	}
	if !hasRequestTarget {
		return fmt.Errorf("missing http header for %s: %s", method, httpsig.RequestTarget)
	} else if !hasDate {
		return fmt.Errorf("missing http header for %s: Date", method)
	} else if !hasDigest && method != http.MethodGet {
		return fmt.Errorf("missing http header for %s: Digest", method)
	}
	return nil
}

// Transport performs signed retrieval and delivery of ActivityPub payloads
// on behalf of one local actor's keypair.
type Transport interface {
	Dereference(c context.Context, iri *url.URL) ([]byte, error)
	Deliver(c context.Context, b []byte, to *url.URL) error
	BatchDeliver(c context.Context, b []byte, recipients []*url.URL) error
}

// Controller builds per-actor Transports sharing one outbound rate limiter
// and delivery-attempt bookkeeping.
type Controller struct {
	client      *http.Client
	algs        []httpsig.Algorithm
	digestAlg   httpsig.DigestAlgorithm
	getHeaders  []string
	postHeaders []string
	l           *hostLimiter
	da          *services.DeliveryAttempts
}

func NewController(
	c *config.Config,
	client *http.Client,
	da *services.DeliveryAttempts) (tc *Controller, err error) {
	if c.ActivityPubConfig.OutboundRateLimitQPS <= 0 {
		err = fmt.Errorf("outbound rate limit qps is <= 0")
		return
	} else if c.ActivityPubConfig.OutboundRateLimitBurst <= 0 {
		err = fmt.Errorf("outbound rate limit burst is <= 0")
		return
	} else if len(c.ActivityPubConfig.HttpSignaturesConfig.Algorithms) == 0 {
		err = fmt.Errorf("no httpsig algorithms specified")
		return
	} else if err = containsRequiredHttpHeaders(http.MethodGet, c.ActivityPubConfig.HttpSignaturesConfig.GetHeaders); err != nil {
		return
	} else if err = containsRequiredHttpHeaders(http.MethodPost, c.ActivityPubConfig.HttpSignaturesConfig.PostHeaders); err != nil {
		return
	} else if !httpsig.IsSupportedDigestAlgorithm(c.ActivityPubConfig.HttpSignaturesConfig.DigestAlgorithm) {
		err = fmt.Errorf("unsupported digest algorithm: %s", c.ActivityPubConfig.HttpSignaturesConfig.DigestAlgorithm)
		return
	}
	algos := make([]httpsig.Algorithm, len(c.ActivityPubConfig.HttpSignaturesConfig.Algorithms))
	for i, algo := range c.ActivityPubConfig.HttpSignaturesConfig.Algorithms {
		if !httpsig.IsSupportedHttpSigAlgorithm(algo) {
			err = fmt.Errorf("unsupported httpsig algorithm: %s", algo)
			return
		}
		algos[i] = httpsig.Algorithm(algo)
	}

	hl := newHostLimiter(c)
	hl.Start()

	return &Controller{
		client:      client,
		algs:        algos,
		digestAlg:   httpsig.DigestAlgorithm(c.ActivityPubConfig.HttpSignaturesConfig.DigestAlgorithm),
		getHeaders:  c.ActivityPubConfig.HttpSignaturesConfig.GetHeaders,
		postHeaders: c.ActivityPubConfig.HttpSignaturesConfig.PostHeaders,
		l:           hl,
		da:          da,
	}, err
}

func (tc *Controller) Stop() {
	tc.l.Stop()
}

// Get builds a Transport signing requests with the given actor keypair.
func (tc *Controller) Get(privKey crypto.PrivateKey, pubKeyId string) (t Transport, err error) {
	var getSigner, postSigner httpsig.Signer
	getSigner, _, err = httpsig.NewSigner(tc.algs, tc.digestAlg, tc.getHeaders, httpsig.Signature)
	if err != nil {
		return
	}
	postSigner, _, err = httpsig.NewSigner(tc.algs, tc.digestAlg, tc.postHeaders, httpsig.Signature)
	if err != nil {
		return
	}
	return newTransport(
		tc.client,
		getSigner,
		postSigner,
		privKey,
		pubKeyId,
		tc)
}

func (tc *Controller) limiterFor(host string) *rate.Limiter {
	return tc.l.Get(host)
}

func (tc *Controller) insertAttempt(c util.Context, payload []byte, to *url.URL, fromActor string) (id string, err error) {
	return tc.da.Create(c, fromActor, to, payload)
}

func (tc *Controller) markSuccess(c util.Context, id string) (err error) {
	return tc.da.MarkSuccessful(c, id)
}

func (tc *Controller) markFailure(c util.Context, id string) (err error) {
	return tc.da.MarkFailed(c, id)
}

var _ Transport = &transport{}

type transport struct {
	client                    *http.Client
	getSigner, postSigner     httpsig.Signer
	getSignerMu, postSignerMu *sync.Mutex
	privKey                   crypto.PrivateKey
	pubKeyId                  string
	tc                        *Controller
}

func newTransport(
	client *http.Client,
	getSigner, postSigner httpsig.Signer,
	privKey crypto.PrivateKey,
	pubKeyId string,
	tc *Controller) (t *transport, err error) {
	return &transport{
		client:       client,
		getSigner:    getSigner,
		postSigner:   postSigner,
		getSignerMu:  &sync.Mutex{},
		postSignerMu: &sync.Mutex{},
		privKey:      privKey,
		pubKeyId:     pubKeyId,
		tc:           tc,
	}, nil
}

func (t *transport) Dereference(c context.Context, iri *url.URL) (b []byte, err error) {
	if err = t.tc.limiterFor(iri.Host).Wait(c); err != nil {
		return
	}
	var req *http.Request
	req, err = http.NewRequest(http.MethodGet, iri.String(), nil)
	if err != nil {
		return
	}
	req = req.WithContext(c)
	req.Header.Add("Accept", activityStreamsContentType)
	req.Header.Add("Accept-Charset", "utf-8")
	req.Header.Add("Date", date())
	req.Header.Add("User-Agent", userAgent)
	t.getSignerMu.Lock()
	err = t.getSigner.SignRequest(t.privKey, t.pubKeyId, req, nil)
	t.getSignerMu.Unlock()
	if err != nil {
		return
	}
	var resp *http.Response
	resp, err = t.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if err = handleDereferenceResponse(resp); err != nil {
		return
	}
	b, err = ioutil.ReadAll(resp.Body)
	return
}

func (t *transport) Deliver(c context.Context, b []byte, to *url.URL) (err error) {
	uc := util.Context{c}
	fromActor, err := uc.ActorIRI()
	if err != nil {
		err = fmt.Errorf("failed to determine actor to deliver on behalf of: %s", err)
		return
	}
	var attemptId string
	if attemptId, err = t.tc.insertAttempt(uc, b, to, fromActor.String()); err != nil {
		err = fmt.Errorf("failed to create delivery attempt: %s", err)
		return
	}

	if err = t.tc.limiterFor(to.Host).Wait(c); err != nil {
		return
	}

	byteCopy := make([]byte, len(b))
	copy(byteCopy, b)
	buf := bytes.NewBuffer(byteCopy)
	var req *http.Request
	req, err = http.NewRequest(http.MethodPost, to.String(), buf)
	if err != nil {
		return
	}
	req = req.WithContext(c)
	req.Header.Add("Content-Type", activityStreamsContentType)
	req.Header.Add("Accept-Charset", "utf-8")
	req.Header.Add("Date", date())
	req.Header.Add("User-Agent", userAgent)
	t.postSignerMu.Lock()
	err = t.postSigner.SignRequest(t.privKey, t.pubKeyId, req, b)
	t.postSignerMu.Unlock()
	if err != nil {
		return
	}
	var resp *http.Response
	resp, err = t.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if err = handleDeliverResponse(resp); err != nil {
		if err2 := t.tc.markFailure(uc, attemptId); err2 != nil {
			err = fmt.Errorf("failed delivery and failed to mark as failure (%s): [%s, %s]", attemptId, err, err2)
		}
		return
	}
	if err = t.tc.markSuccess(uc, attemptId); err != nil {
		err = fmt.Errorf("failed to mark delivery as successful (%s): %s", attemptId, err)
		return
	}
	return
}

func (t *transport) BatchDeliver(c context.Context, b []byte, recipients []*url.URL) (err error) {
	var wg sync.WaitGroup
	for i, r := range recipients {
		wg.Add(1)
		go func(i int, r *url.URL) {
			defer wg.Done()
			if err := t.Deliver(c, b, r); err != nil {
				util.ErrorLogger.Errorf("BatchDeliver (%d of %d): %s", i, len(recipients), err)
			}
		}(i, r)
	}
	wg.Wait()
	return
}

func handleDereferenceResponse(r *http.Response) (err error) {
	ok := r.StatusCode == http.StatusOK
	if !ok {
		err = fmt.Errorf("url IRI dereference failed with status (%d): %s", r.StatusCode, r.Status)
	}
	return
}

func handleDeliverResponse(r *http.Response) (err error) {
	ok := r.StatusCode == http.StatusOK ||
		r.StatusCode == http.StatusCreated ||
		r.StatusCode == http.StatusAccepted
	if !ok {
		err = fmt.Errorf("delivery failed with status (%d): %s", r.StatusCode, r.Status)
	}
	return
}

func date() string {
	return fmt.Sprintf("%s GMT", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05"))
}
