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

	"github.com/gin-gonic/gin"

	"github.com/shieldpay/privacy/common"
)

// InstallLedgerAPI registers the ledger API handlers with gin
func InstallLedgerAPI(r *gin.Engine, l *Ledger) {
	r.GET("/api/v1/root", rootHandler(l))
	r.GET("/api/v1/notes/:hint", notesHandler(l))
	r.GET("/api/v1/snapshot/:hint", snapshotHandler(l))

	r.POST("/api/v1/commitments", ingestCommitmentHandler(l))
	r.POST("/api/v1/transfers", executeTransferHandler(l))
	r.POST("/api/v1/withdrawals", executeWithdrawHandler(l))

	r.POST("/api/v1/requests", createPaymentRequestHandler(l))
	r.GET("/api/v1/requests/:hash", paymentRequestDetailsHandler(l))
}

func rootHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		common.Render(l.GetRoot(), 200, c)
	}
}

func notesHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		common.Render(l.GetNotes(c.Param("hint")), 200, c)
	}
}

func snapshotHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		common.Render(l.GetSnapshot(c.Param("hint")), 200, c)
	}
}

func ingestCommitmentHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		var params struct {
			Commitment    string            `json:"commitment"`
			RecipientHint string            `json:"recipient_hint"`
			Note          *IngestNoteParams `json:"note"`
			Ciphertext    *NoteCiphertext   `json:"ciphertext"`
		}
		if err := json.Unmarshal(buf, &params); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		if params.Commitment == "" || params.RecipientHint == "" || params.Note == nil {
			common.RenderError("commitment, recipient_hint and note are required", 422, c)
			return
		}

		result, err := l.IngestCommitment(params.Commitment, params.RecipientHint, params.Note, params.Ciphertext)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(result, 201, c)
	}
}

func executeTransferHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		request := &TransferExecutionRequest{}
		if err := json.Unmarshal(buf, request); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		result, err := l.ExecutePrivateTransfer(request)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(result, 201, c)
	}
}

func executeWithdrawHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		request := &WithdrawExecutionRequest{}
		if err := json.Unmarshal(buf, request); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		result, err := l.ExecutePrivateWithdraw(request)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(result, 201, c)
	}
}

func createPaymentRequestHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		request := &PaymentRequest{}
		if err := json.Unmarshal(buf, request); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		created, err := l.CreatePaymentRequest(request)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(created, 201, c)
	}
}

func paymentRequestDetailsHandler(l *Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := l.GetPaymentRequest(c.Param("hash"))
		if request == nil {
			common.RenderError("payment request not found", 404, c)
			return
		}
		common.Render(request, 200, c)
	}
}
