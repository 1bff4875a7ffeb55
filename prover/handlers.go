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

package prover

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/shieldpay/privacy/common"
	"github.com/shieldpay/privacy/proof"
)

// InstallProverAPI registers the proof subsystem API handlers with gin
func InstallProverAPI(r *gin.Engine, svc *Service) {
	r.POST("/api/v1/prove/transfer", proveTransferHandler(svc))
	r.POST("/api/v1/prove/withdraw", proveWithdrawHandler(svc))
	r.POST("/api/v1/verify", verifyHandler(svc))
}

func proveTransferHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		request := &TransferProofRequest{}
		if err := json.Unmarshal(buf, request); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		response, err := svc.CreateTransferProof(request)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(response, 201, c)
	}
}

func proveWithdrawHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		request := &WithdrawProofRequest{}
		if err := json.Unmarshal(buf, request); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		response, err := svc.CreateWithdrawProof(request)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(response, 201, c)
	}
}

func verifyHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		buf, err := c.GetRawData()
		if err != nil {
			common.RenderError(err.Error(), 400, c)
			return
		}

		bundle := &proof.Bundle{}
		if err := json.Unmarshal(buf, bundle); err != nil {
			common.RenderError(err.Error(), 422, c)
			return
		}

		valid, err := svc.VerifyProofBundle(bundle)
		if err != nil {
			common.RenderError(err.Error(), common.RenderStatusForError(err), c)
			return
		}

		common.Render(map[string]interface{}{"valid": valid}, 200, c)
	}
}
