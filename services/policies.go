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

package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/util"
)

type Policies struct {
	DB          *sql.DB
	Policies    *models.Policies
	Resolutions *models.Resolutions
}

// Create stores a new policy for an actor and purpose, returning its id.
func (p *Policies) Create(c util.Context, cp models.CreatePolicy) (policyID string, err error) {
	err = doInTx(c, p.DB, func(tx *sql.Tx) error {
		policyID, err = p.Policies.Create(c, tx, cp)
		return err
	})
	return
}

// IsBlocked runs every federated-block policy an actor has configured
// against a normalized activity, recording a Resolution for each policy
// evaluated and reporting whether any policy matched.
func (p *Policies) IsBlocked(c util.Context, actorID *url.URL, a util.Activity) (blocked bool, err error) {
	idStr, ok := a["id"].(string)
	if !ok {
		err = fmt.Errorf("activity has no string \"id\" property")
		return
	}
	var iri *url.URL
	iri, err = url.Parse(idStr)
	if err != nil {
		return
	}
	var jsonb []byte
	jsonb, err = json.Marshal(a)
	if err != nil {
		return
	}
	err = doInTx(c, p.DB, func(tx *sql.Tx) error {
		pd, err := p.Policies.GetForActorAndPurpose(c, tx, actorID, models.FederatedBlockPurpose)
		if err != nil {
			return err
		}
		for _, policy := range pd {
			var res models.Resolution
			res.Time = time.Now()
			err = policy.Policy.Resolve(jsonb, &res)
			if err != nil {
				return err
			}
			err = p.Resolutions.Create(c, tx, models.CreateResolution{
				PolicyID: policy.ID,
				IRI:      iri,
				R:        res,
			})
			if err != nil {
				return err
			}
			blocked = blocked || res.Matched
		}
		return nil
	})
	return
}
