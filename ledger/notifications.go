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

	natsutil "github.com/kthomas/go-natsutil"
	"github.com/nats-io/nats.go"

	"github.com/shieldpay/privacy/common"
)

const natsLedgerNotificationSubjectPrefix = "privacy.ledger.notification"

const natsLedgerNotificationNoteDeposited = "note.deposited"
const natsLedgerNotificationNoteNullified = "note.nullified"
const natsLedgerNotificationTransferExecuted = "transfer.executed"
const natsLedgerNotificationWithdrawExecuted = "withdraw.executed"
const natsLedgerNotificationRequestPaid = "request.paid"

// dispatchNotification broadcasts a ledger event to qualified subjects;
// dispatch failures are logged and never fail the mutation that emitted them
func (l *Ledger) dispatchNotification(event string, payload map[string]interface{}) (*nats.PubAck, error) {
	if !common.DispatchNATSNotifications {
		return nil, nil
	}

	if event == "" {
		return nil, fmt.Errorf("failed to dispatch ledger event notification; no event")
	}

	subject := fmt.Sprintf("%s.%s", natsLedgerNotificationSubjectPrefix, event)
	raw, _ := json.Marshal(payload)

	ack, err := natsutil.NatsJetstreamPublish(subject, raw)
	if err != nil {
		common.Log.Warningf("failed to dispatch %s notification; %s", subject, err.Error())
		return nil, err
	}

	return ack, nil
}
