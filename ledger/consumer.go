/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"

	"github.com/shieldpay/privacy/common"
)

const defaultNatsStream = "privacy"

const natsDepositPendingSubject = "privacy.ledger.deposit.pending"
const natsDepositPendingMaxInFlight = 32
const depositAckWait = time.Minute * 5
const depositMaxDeliveries = 5

type depositMessage struct {
	Commitment    string            `json:"commitment"`
	RecipientHint string            `json:"recipient_hint"`
	Note          *IngestNoteParams `json:"note"`
	Ciphertext    *NoteCiphertext   `json:"ciphertext"`
}

// RequireConsumers establishes the NATS streaming subscriptions that ingest
// settlement-layer deposit events into the ledger
func RequireConsumers(l *Ledger, wg *sync.WaitGroup) {
	if !common.ConsumeNATSStreamingSubscriptions {
		common.Log.Debug("ledger package consumer configured to skip NATS streaming subscription setup")
		return
	}

	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			depositAckWait,
			natsDepositPendingSubject,
			natsDepositPendingSubject,
			natsDepositPendingSubject,
			consumeDepositMsgFactory(l),
			depositAckWait,
			natsDepositPendingMaxInFlight,
			depositMaxDeliveries,
			nil,
		)
	}
}

func consumeDepositMsgFactory(l *Ledger) func(msg *nats.Msg) {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				common.Log.Warningf("recovered during deposit ingestion; %s", r)
				msg.Nak()
			}
		}()

		common.Log.Debugf("consuming %d-byte NATS deposit message on subject: %s", len(msg.Data), msg.Subject)

		deposit := &depositMessage{}
		if err := json.Unmarshal(msg.Data, deposit); err != nil {
			common.Log.Warningf("failed to unmarshal deposit message; %s", err.Error())
			msg.Nak()
			return
		}

		if deposit.Commitment == "" || deposit.RecipientHint == "" || deposit.Note == nil {
			common.Log.Warning("failed to ingest deposit; commitment, recipient hint and note are required")
			msg.Nak()
			return
		}

		result, err := l.IngestCommitment(deposit.Commitment, deposit.RecipientHint, deposit.Note, deposit.Ciphertext)
		if err != nil {
			common.Log.Warningf("failed to ingest deposit commitment %s; %s", deposit.Commitment, err.Error())
			msg.Nak()
			return
		}

		common.Log.Debugf("ingested deposit commitment %s at index %d; root: %s", deposit.Commitment, result.Index, result.Root)
		msg.Ack()
	}
}
